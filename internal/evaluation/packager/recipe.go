package packager

// BuildRecipe is the container definition sent with every archive. Tests run before the
// production build so a failing test fails the image build.
const BuildRecipe = `FROM node:20-alpine
WORKDIR /app
COPY . .
RUN npm install --no-audit --no-fund
RUN CI=true npm test -- --watchAll=false --passWithNoTests
RUN npm run build
RUN npm install -g serve
EXPOSE 3000
CMD ["serve", "-s", "build", "-l", "3000"]
`
